package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE questions (
				id TEXT PRIMARY KEY,
				msg_id TEXT NOT NULL,
				aibot_id TEXT NOT NULL DEFAULT '',
				chat_id TEXT NOT NULL DEFAULT '',
				chat_type TEXT NOT NULL DEFAULT '',
				chat_origin TEXT NOT NULL DEFAULT '',
				query_text TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
				finish BOOLEAN NOT NULL DEFAULT 0,
				content TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE UNIQUE INDEX idx_questions_msg_id ON questions(msg_id);
			CREATE INDEX idx_questions_advance ON questions(status, finish, created_at);
			CREATE INDEX idx_questions_unfinished ON questions(finish, created_at);
		`,
		2: `
			CREATE TABLE workflow_runs (
				id TEXT PRIMARY KEY,
				question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
				conversation_id TEXT NOT NULL DEFAULT '',
				message_id TEXT NOT NULL DEFAULT '',
				task_id TEXT NOT NULL DEFAULT '',
				run_token TEXT NOT NULL DEFAULT '',
				latest_answer TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_workflow_runs_question_id ON workflow_runs(question_id, created_at);

			CREATE TABLE workflow_events (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				question_id TEXT NOT NULL,
				event_kind TEXT NOT NULL,
				status TEXT NOT NULL,
				answer_fragment TEXT,
				payload TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_workflow_events_run_kind ON workflow_events(run_id, event_kind, seq);
			CREATE INDEX idx_workflow_events_run_status ON workflow_events(run_id, status);
			CREATE INDEX idx_workflow_events_question_kind ON workflow_events(question_id, event_kind, seq);
		`,
	}
}
