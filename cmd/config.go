package cmd

import "github.com/spf13/viper"

func settingDefaultConfig() {
	// Enable automatic environment variable binding
	viper.AutomaticEnv()

	// Map environment variables to Viper keys for the server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	viper.BindEnv("server.max_upload_bytes", "SERVER_MAX_UPLOAD_BYTES")
	viper.BindEnv("server.cors_origins", "SERVER_CORS_ORIGINS")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")

	// Vector storage
	viper.BindEnv("store.backend", "VECTOR_BACKEND")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("weaviate.url", "WEAVIATE_URL")
	viper.BindEnv("weaviate.scheme", "WEAVIATE_SCHEME")
	viper.BindEnv("elasticsearch.url", "ELASTICSEARCH_URL")
	viper.BindEnv("elasticsearch.username", "ELASTICSEARCH_USERNAME")
	viper.BindEnv("elasticsearch.password", "ELASTICSEARCH_PASSWORD")

	// Embedding and generation
	viper.BindEnv("embedding.provider", "EMBEDDING_PROVIDER")
	viper.BindEnv("embedding.model", "EMBEDDING_MODEL")
	viper.BindEnv("embedding.url", "EMBEDDING_URL")
	viper.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	viper.BindEnv("generation.provider", "GENERATION_PROVIDER")
	viper.BindEnv("generation.model", "GENERATION_MODEL")
	viper.BindEnv("generation.api_key", "GOOGLE_API_KEY")
	viper.BindEnv("generation.url", "GENERATION_URL")

	// Map environment variables to Viper keys for RabbitMQ
	viper.BindEnv("retire.amqp_url", "AMQP_URL")

	viper.BindEnv("cache.valkey_addr", "VALKEY_ADDR")
	viper.BindEnv("extract.unstructured_url", "UNSTRUCTURED_API_URL")

	// Set default values
	viper.SetDefault("server.port", "5001")
	viper.SetDefault("server.shutdown_timeout", "5s")
	viper.SetDefault("server.max_upload_bytes", 32<<20)
	viper.SetDefault("server.cors_origins", []string{"*"})

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetDefault("store.backend", "pgvector")
	viper.SetDefault("weaviate.url", "localhost:8080")
	viper.SetDefault("weaviate.scheme", "http")
	viper.SetDefault("elasticsearch.url", "http://localhost:9200")

	viper.SetDefault("embedding.provider", "ollama")
	viper.SetDefault("embedding.model", "all-minilm")
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("embedding.batch_size", 64)

	viper.SetDefault("generation.provider", "gemini")
	viper.SetDefault("generation.model", "gemini-2.5-flash")
	viper.SetDefault("generation.timeout", "60s")
	viper.SetDefault("generation.temperature", 0.1)

	viper.SetDefault("rag.chunk_size", 1000)
	viper.SetDefault("rag.chunk_overlap", 200)
	viper.SetDefault("rag.top_k", 5)
	viper.SetDefault("rag.max_context_chars", 8000)
	viper.SetDefault("rag.store_timeout", "30s")

	viper.SetDefault("retire.max_retries", 5)
	viper.SetDefault("retire.idle_timeout", "30s")

	viper.SetDefault("cache.ttl", "168h")
}
