package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create questions table
			CREATE TABLE questions (
				id VARCHAR(255) PRIMARY KEY,
				msg_id VARCHAR(255) NOT NULL,
				aibot_id VARCHAR(255) NOT NULL DEFAULT '',
				chat_id VARCHAR(255) NOT NULL DEFAULT '',
				chat_type VARCHAR(50) NOT NULL DEFAULT '',
				chat_origin VARCHAR(255) NOT NULL DEFAULT '',
				query_text TEXT NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
				finish BOOLEAN NOT NULL DEFAULT false,
				content TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_questions_msg_id ON questions(msg_id);
			CREATE INDEX idx_questions_advance ON questions(status, finish, created_at);
			CREATE INDEX idx_questions_unfinished ON questions(created_at) WHERE finish = false;
		`,
		2: `
			-- Engine invocations and their streamed events
			CREATE TABLE workflow_runs (
				id VARCHAR(255) PRIMARY KEY,
				question_id VARCHAR(255) NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
				conversation_id VARCHAR(255) NOT NULL DEFAULT '',
				message_id VARCHAR(255) NOT NULL DEFAULT '',
				task_id VARCHAR(255) NOT NULL DEFAULT '',
				run_token VARCHAR(255) NOT NULL DEFAULT '',
				latest_answer TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_runs_question_id ON workflow_runs(question_id, created_at);

			CREATE TABLE workflow_events (
				seq BIGSERIAL PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				question_id VARCHAR(255) NOT NULL,
				event_kind VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				answer_fragment TEXT,
				payload TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_events_run_kind ON workflow_events(run_id, event_kind, seq);
			CREATE INDEX idx_workflow_events_run_status ON workflow_events(run_id, status);
			CREATE INDEX idx_workflow_events_question_kind ON workflow_events(question_id, event_kind, seq);
		`,
	}
}
