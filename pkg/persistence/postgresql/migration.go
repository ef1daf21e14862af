package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE tasks (
				id VARCHAR(128) PRIMARY KEY,
				recipe VARCHAR(255) NOT NULL,
				version BIGINT NOT NULL CHECK (version > 0),
				status VARCHAR(32) NOT NULL CHECK (status IN ('PROCESSING', 'WAITING_FOR_INPUT', 'COMPLETED', 'FAILED')),
				state JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_status_updated_at ON tasks(status, updated_at);
		`,
	}
}
