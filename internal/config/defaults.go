package config

import "time"

// GetDefaultConfig returns the built-in configuration: a pnpm workspace with
// a worker backend on 8787 and a Vite frontend on 5173.
func GetDefaultConfig() DevctlConfig {
	return DevctlConfig{
		Project: ProjectConfig{
			Marker: "pnpm-workspace.yaml",
		},
		Tools: []ToolRequirement{
			{Name: "pnpm", Hint: "npm i -g pnpm"},
		},
		Install: []CommandStep{
			{
				Name:     "approve-builds",
				Command:  []string{"pnpm", "--yes", "approve-builds", "prisma", "@prisma/client", "@prisma/engines"},
				Optional: true,
			},
			{
				Name:    "install",
				Command: []string{"pnpm", "install"},
			},
		},
		Migrate: MigrateConfig{
			DatabaseURLFile: "apps/worker/wrangler.jsonc",
			DatabaseURLKey:  "vars.DATABASE_URL",
			Check: ToolCheck{
				Name:    "prisma-cli",
				Command: []string{"pnpm", "--filter", "worker", "exec", "prisma", "-v"},
				Repair: []CommandStep{
					{
						Name:     "approve-builds",
						Command:  []string{"pnpm", "--yes", "approve-builds", "prisma", "@prisma/client", "@prisma/engines"},
						Optional: true,
					},
					{Name: "install", Command: []string{"pnpm", "install"}},
				},
				Remediation: "pnpm --yes approve-builds prisma @prisma/client @prisma/engines",
			},
			Steps: []CommandStep{
				{Name: "migrate", Command: []string{"pnpm", "--filter", "worker", "exec", "prisma", "migrate", "deploy"}},
				{Name: "seed", Command: []string{"pnpm", "--filter", "worker", "exec", "prisma", "db", "seed"}},
			},
		},
		Proxy: ProxyConfig{
			Enabled: true,
			File:    "apps/web/vite.config.ts",
			Paths:   []string{"/api", "/dev"},
		},
		Backend: ProcessDefinition{
			Name:    "worker",
			Command: []string{"pnpm", "--filter", "worker", "dev"},
			Host:    "127.0.0.1",
			Port:    8787,
			Health: HealthConfig{
				Path:       "/health",
				Timeout:    45 * time.Second,
				Interval:   time.Second,
				ReadyField: "ok",
			},
		},
		Frontend: ProcessDefinition{
			Name:               "web",
			Command:            []string{"pnpm", "--filter", "web", "dev"},
			Host:               "localhost",
			Port:               5173,
			AwaitBackendHealth: true,
		},
		Tunnel: TunnelConfig{
			Mode:   TunnelOff,
			Binary: "ngrok",
			Hint:   "https://ngrok.com/download",
		},
		Ports: PortsConfig{
			AutoFree: true,
			FreeWait: 2 * time.Second,
		},
		Shutdown: ShutdownConfig{
			GracePeriod:  10 * time.Second,
			PollInterval: time.Second,
		},
		Browser: BrowserConfig{
			Open:  true,
			Delay: 2 * time.Second,
		},
	}
}
