// Package config provides configuration management for devctl.
//
// Configuration is layered. Each layer is decoded on top of the previous
// one, so a layer only needs to mention the keys it changes:
//
//  1. Default configuration (compiled in, see GetDefaultConfig)
//  2. User configuration (~/.config/devctl/config.yaml)
//  3. Project configuration (./.devctl/config.yaml, or --config)
//  4. Environment overrides (DEVCTL_PORT, DEVCTL_TUNNEL_TOKEN, DEVCTL_TUNNEL_DOMAIN)
//
// Command line flags are applied last by the cmd package and win over the
// environment.
//
// # Configuration Structure
//
//	project:
//	  marker: pnpm-workspace.yaml
//	tools:
//	  - name: pnpm
//	    hint: npm i -g pnpm
//	install:
//	  - name: install
//	    command: [pnpm, install]
//	    skipIfExists: node_modules
//	migrate:
//	  databaseURLFile: apps/worker/wrangler.jsonc
//	  steps:
//	    - name: migrate
//	      command: [pnpm, --filter, worker, exec, prisma, migrate, deploy]
//	backend:
//	  name: worker
//	  command: [pnpm, --filter, worker, dev]
//	  port: 8787
//	  health:
//	    path: /health
//	    timeout: 45s
//	    readyField: ok
//	frontend:
//	  name: web
//	  command: [pnpm, --filter, web, dev]
//	  port: 5173
//	  awaitBackendHealth: true
//	tunnel:
//	  mode: "off"
//	  binary: ngrok
//
// Lists replace the list of the previous layer; maps are merged key by key.
//
// # Environment Variable Expansion
//
// Values in env maps support expansion, including defaults:
//
//	env:
//	  API_URL: "http://127.0.0.1:${BACKEND_PORT:-8787}"
package config
