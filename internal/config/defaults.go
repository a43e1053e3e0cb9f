package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Artifacts.BaseURL == "" {
		cfg.Artifacts.BaseURL = "/artifacts"
	}
	if cfg.Artifacts.CacheDir == "" {
		cfg.Artifacts.CacheDir = "/usr/local/var/kotae/cache"
	}
	if cfg.Artifacts.FetchTimeout == 0 {
		cfg.Artifacts.FetchTimeout = 30
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.SemanticWeight = 0.6
	}
	if cfg.Retrieval.LexicalWeight == 0 {
		cfg.Retrieval.LexicalWeight = 0.4
	}
	if cfg.Retrieval.TokenBudget == 0 {
		cfg.Retrieval.TokenBudget = 2000
	}
	if cfg.Retrieval.MinChunks == 0 {
		cfg.Retrieval.MinChunks = 3
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 50
	}
	if cfg.Retrieval.LexicalLimit == 0 {
		cfg.Retrieval.LexicalLimit = 50
	}
	if cfg.Chunking.TargetTokens == 0 {
		cfg.Chunking.TargetTokens = 256
	}
	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 512
	}
	if cfg.Chunking.MinTokens == 0 {
		cfg.Chunking.MinTokens = 64
	}
	if cfg.Chunking.OverlapTokens == 0 {
		cfg.Chunking.OverlapTokens = 32
	}
}
