package postgres

const (
	querySchema = `
		CREATE TABLE IF NOT EXISTS robot_status (
			id               SMALLINT PRIMARY KEY CHECK (id = 1),
			position_x       DOUBLE PRECISION NOT NULL,
			position_y       DOUBLE PRECISION NOT NULL,
			position_z       DOUBLE PRECISION NOT NULL,
			state            TEXT NOT NULL,
			battery          INTEGER NOT NULL CHECK (battery BETWEEN 0 AND 100),
			errors           JSONB NOT NULL DEFAULT '[]',
			is_connected     BOOLEAN NOT NULL,
			current_decision TEXT,
			current_reason   TEXT,
			updated_at       TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS commands (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			payload    JSONB NOT NULL,
			status     TEXT NOT NULL,
			reason     TEXT NOT NULL,
			success    BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS commands_created_at_idx ON commands (created_at DESC);
	`

	queryEnsureStatus = `
		INSERT INTO robot_status (
			id,
			position_x,
			position_y,
			position_z,
			state,
			battery,
			errors,
			is_connected,
			current_decision,
			current_reason,
			updated_at
		) VALUES (
			1,
			:position_x,
			:position_y,
			:position_z,
			:state,
			:battery,
			:errors,
			:is_connected,
			:current_decision,
			:current_reason,
			:updated_at
		)
		ON CONFLICT (id) DO NOTHING
	`

	queryReplaceStatus = `
		INSERT INTO robot_status (
			id,
			position_x,
			position_y,
			position_z,
			state,
			battery,
			errors,
			is_connected,
			current_decision,
			current_reason,
			updated_at
		) VALUES (
			1,
			:position_x,
			:position_y,
			:position_z,
			:state,
			:battery,
			:errors,
			:is_connected,
			:current_decision,
			:current_reason,
			:updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			position_x = EXCLUDED.position_x,
			position_y = EXCLUDED.position_y,
			position_z = EXCLUDED.position_z,
			state = EXCLUDED.state,
			battery = EXCLUDED.battery,
			errors = EXCLUDED.errors,
			is_connected = EXCLUDED.is_connected,
			current_decision = EXCLUDED.current_decision,
			current_reason = EXCLUDED.current_reason,
			updated_at = EXCLUDED.updated_at
	`

	queryGetStatus = `
		SELECT
			position_x,
			position_y,
			position_z,
			state,
			battery,
			errors,
			is_connected,
			current_decision,
			current_reason
		FROM robot_status
		WHERE id = 1
	`

	queryPatchStatus = `
		UPDATE robot_status SET
			state = :state,
			current_decision = :current_decision,
			current_reason = :current_reason,
			updated_at = :updated_at
		WHERE id = 1
	`

	queryInsertCommand = `
		INSERT INTO commands (
			id,
			type,
			payload,
			status,
			reason,
			success,
			created_at
		) VALUES (
			:id,
			:type,
			:payload,
			:status,
			:reason,
			:success,
			:created_at
		)
	`

	queryRecentCommands = `
		SELECT
			id,
			type,
			payload,
			status,
			reason,
			success,
			created_at
		FROM commands
		ORDER BY created_at DESC, id DESC
		LIMIT :limit
	`
)
