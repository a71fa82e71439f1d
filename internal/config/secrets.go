package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Wallet = cfg.Wallet
	redact(&out.Wallet.MasterSeed)
	redact(&out.Wallet.KeyPassword)

	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if cfg.Chain.Nodes != nil {
		out.Chain.Nodes = make(map[string]ChainNodeConfig, len(cfg.Chain.Nodes))
		for name, node := range cfg.Chain.Nodes {
			redact(&node.APIKey)
			out.Chain.Nodes[name] = node
		}
	}

	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
