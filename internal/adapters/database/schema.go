package database

import "database/sql"

// SchemaSQL is the full schema. Statements are idempotent so Migrate can
// run on every startup.
const SchemaSQL = `
-- Workflow definitions table
CREATE TABLE IF NOT EXISTS workflow_definitions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	auto_approve BOOLEAN NOT NULL DEFAULT FALSE,
	required_approvers INTEGER NOT NULL DEFAULT 1,
	allow_parallel_steps BOOLEAN NOT NULL DEFAULT FALSE,
	global_timeout_sec BIGINT NOT NULL DEFAULT 259200,
	steps JSONB NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_by VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Publishing instances table
CREATE TABLE IF NOT EXISTS publishing_instances (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	document_id VARCHAR(255) NOT NULL,
	workflow_id UUID NOT NULL REFERENCES workflow_definitions(id),
	status TEXT NOT NULL DEFAULT 'PENDING_APPROVAL'
		CHECK (status IN ('PENDING_APPROVAL', 'IN_APPROVAL', 'APPROVED', 'REJECTED', 'PUBLISHED')),
	current_step_number INTEGER NOT NULL DEFAULT 1,
	urgency TEXT NOT NULL DEFAULT 'MEDIUM',
	destinations JSONB NOT NULL,
	reassignments JSONB NOT NULL DEFAULT '[]',
	metadata JSONB,
	scheduled_publish_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	published_at TIMESTAMPTZ,
	submitted_by VARCHAR(255) NOT NULL,
	submission_notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Approval decisions table
CREATE TABLE IF NOT EXISTS approval_decisions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	instance_id UUID NOT NULL REFERENCES publishing_instances(id) ON DELETE CASCADE,
	step_number INTEGER NOT NULL,
	approver_id VARCHAR(255) NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING'
		CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'EXPIRED')),
	decision TEXT CHECK (decision IN ('APPROVE', 'REJECT')),
	comments TEXT NOT NULL DEFAULT '',
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	responded_at TIMESTAMPTZ,
	due_date TIMESTAMPTZ NOT NULL,
	UNIQUE (instance_id, step_number, approver_id)
);

-- Conflicts table
CREATE TABLE IF NOT EXISTS conflicts (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	instance_id UUID NOT NULL REFERENCES publishing_instances(id) ON DELETE CASCADE,
	step_number INTEGER NOT NULL,
	kind TEXT NOT NULL CHECK (kind IN ('APPROVAL_DISAGREEMENT', 'DEADLINE_MISSED', 'ROLE_CONFLICT')),
	description TEXT NOT NULL DEFAULT '',
	detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved BOOLEAN NOT NULL DEFAULT FALSE
);

-- Conflict resolutions table (append-only audit log)
CREATE TABLE IF NOT EXISTS conflict_resolutions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	conflict_id UUID NOT NULL REFERENCES conflicts(id) ON DELETE CASCADE,
	instance_id UUID NOT NULL,
	kind TEXT NOT NULL CHECK (kind IN ('ESCALATE', 'OVERRIDE', 'EXTEND_DEADLINE', 'REASSIGN')),
	notes TEXT NOT NULL DEFAULT '',
	resolved_by VARCHAR(255) NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_instances_status ON publishing_instances(status);
CREATE INDEX IF NOT EXISTS idx_instances_document ON publishing_instances(document_id);
CREATE INDEX IF NOT EXISTS idx_instances_due ON publishing_instances(scheduled_publish_at) WHERE status = 'APPROVED';
CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_active_document ON publishing_instances(document_id)
	WHERE status NOT IN ('REJECTED', 'PUBLISHED');

CREATE INDEX IF NOT EXISTS idx_decisions_instance ON approval_decisions(instance_id);
CREATE INDEX IF NOT EXISTS idx_decisions_overdue ON approval_decisions(due_date) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_decisions_approver ON approval_decisions(approver_id) WHERE status = 'PENDING';

CREATE INDEX IF NOT EXISTS idx_conflicts_instance ON conflicts(instance_id) WHERE NOT resolved;
CREATE INDEX IF NOT EXISTS idx_resolutions_instance ON conflict_resolutions(instance_id);
`

// Migrate applies the schema over a plain database/sql connection.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(SchemaSQL)
	return err
}
