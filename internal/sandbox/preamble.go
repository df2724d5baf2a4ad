// Package sandbox renders the in-process interposition layer loaded before
// user code under the preamble execution backend. It is an advisory
// sandbox: defence in depth and a carrier for the permission model, not
// isolation against adversarial code.
package sandbox

import (
	"bytes"
	"fmt"
	"text/template"
)

// Config controls how the rendered preamble reaches the proxy and which
// environment variables user code may read.
type Config struct {
	// ProxyURL is the base URL of the local-only permission proxy.
	ProxyURL string
	// AllowedEnvVars is the set of environment variable names user code
	// may observe; anything else reads as denied.
	AllowedEnvVars []string
}

var preambleTemplate = template.Must(template.New("preamble").Parse(preambleSource))

// Render produces the JavaScript preamble text for cfg.
func Render(cfg Config) (string, error) {
	if cfg.ProxyURL == "" {
		return "", fmt.Errorf("sandbox: ProxyURL is required")
	}

	var buf bytes.Buffer
	data := struct {
		ProxyURL       string
		AllowedEnvVars []string
	}{
		ProxyURL:       cfg.ProxyURL,
		AllowedEnvVars: cfg.AllowedEnvVars,
	}
	if err := preambleTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering preamble: %w", err)
	}
	return buf.String(), nil
}

// preambleSource is the body of the generated preamble. It replaces the
// global network primitive with a shim that calls the proxy, denies
// filesystem/spawn primitives, and gates environment reads to an allowlist
// captured before replacement.
const preambleSource = `// generated preamble -- do not edit, see internal/sandbox
(function () {
  "use strict";

  const PROXY_URL = {{printf "%q" .ProxyURL}};
  const ALLOWED_ENV_VARS = new Set([
    {{range .AllowedEnvVars}}{{printf "%q" .}},
    {{end}}
  ]);

  const capturedEnv = {};
  for (const name of ALLOWED_ENV_VARS) {
    if (Object.prototype.hasOwnProperty.call(process.env, name)) {
      capturedEnv[name] = process.env[name];
    }
  }

  function denyPrimitive(name) {
    return function () {
      throw new Error(name + " is not available inside the sandbox");
    };
  }

  async function shimmedFetch(input, init) {
    init = init || {};
    const url = typeof input === "string" ? input : input.url;
    const method = (init.method || "GET").toUpperCase();
    const headers = {};
    if (init.headers) {
      for (const [k, v] of Object.entries(init.headers)) {
        headers[k] = String(v);
      }
    }
    const body = init.body !== undefined && init.body !== null ? String(init.body) : undefined;

    const proxyResp = await fetch(PROXY_URL + "/proxy", {
      method: "POST",
      headers: { "content-type": "application/json" },
      body: JSON.stringify({ url: url, method: method, headers: headers, body: body }),
    });

    if (proxyResp.status === 403) {
      const denial = await proxyResp.json();
      process.stderr.write(JSON.stringify(denial) + "\n");
      const err = new Error("PERMISSION_DENIED");
      err.code = "PERMISSION_DENIED";
      err.record = denial;
      throw err;
    }

    const payload = await proxyResp.json();
    return new Response(payload.body, {
      status: payload.status,
      statusText: payload.statusText,
      headers: payload.headers,
    });
  }

  globalThis.fetch = shimmedFetch;

  if (typeof require === "function") {
    const Module = require("module");
    const originalLoad = Module._load;
    Module._load = function (request, parent, isMain) {
      if (request === "fs" || request === "fs/promises" || request === "child_process") {
        throw new Error(request + " is not available inside the sandbox");
      }
      return originalLoad.apply(this, arguments);
    };
  }

  const envProxy = new Proxy(
    {},
    {
      get(_target, prop) {
        if (typeof prop !== "string") return undefined;
        if (!ALLOWED_ENV_VARS.has(prop)) {
          throw new Error(
            "environment variable " + prop + " is not allowlisted (allowed: " +
              Array.from(ALLOWED_ENV_VARS).join(", ") + ")"
          );
        }
        return capturedEnv[prop];
      },
      set() {
        throw new Error("environment variables are read-only inside the sandbox");
      },
      has(_target, prop) {
        return typeof prop === "string" && ALLOWED_ENV_VARS.has(prop);
      },
      ownKeys() {
        return Array.from(ALLOWED_ENV_VARS);
      },
      getOwnPropertyDescriptor(_target, prop) {
        if (typeof prop === "string" && ALLOWED_ENV_VARS.has(prop)) {
          return { enumerable: true, configurable: true, value: capturedEnv[prop] };
        }
        return undefined;
      },
    }
  );
  process.env = envProxy;
  process.spawn = denyPrimitive("process.spawn");
})();
`
