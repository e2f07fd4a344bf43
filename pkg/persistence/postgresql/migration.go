package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Namespaced JSON documents
			CREATE TABLE kv_entries (
				namespace VARCHAR(64) NOT NULL,
				key VARCHAR(255) NOT NULL,
				value JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (namespace, key)
			);

			CREATE INDEX idx_kv_entries_updated_at ON kv_entries(updated_at);
		`,
	}
}
