package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS subjects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    subject_id TEXT NOT NULL REFERENCES subjects(id),
    grade INTEGER,
    is_assessment BOOLEAN NOT NULL DEFAULT FALSE,
    position INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_grade CHECK (grade IS NULL OR grade > 0)
);

CREATE INDEX IF NOT EXISTS idx_topics_subject ON topics(subject_id);
CREATE INDEX IF NOT EXISTS idx_topics_grade ON topics(grade) WHERE grade IS NOT NULL;

CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL REFERENCES topics(id),
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_lessons_topic ON lessons(topic_id);
`

const migration001Down = `
DROP TABLE IF EXISTS lessons;
DROP TABLE IF EXISTS topics;
DROP TABLE IF EXISTS subjects;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACTIVITY
// Progress rows intentionally carry no foreign key to the catalog:
// rows with unknown topics are tolerated and excluded at read time.
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS lesson_progress (
    learner_id UUID NOT NULL,
    lesson_id TEXT NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (learner_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS topic_progress (
    learner_id UUID NOT NULL,
    topic_id TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (learner_id, topic_id),

    CONSTRAINT valid_progress CHECK (progress BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    id BIGSERIAL PRIMARY KEY,
    learner_id UUID NOT NULL,
    topic_id TEXT NOT NULL,
    percentage INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_percentage CHECK (percentage BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_quiz_attempts_learner_created ON quiz_attempts(learner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS study_sessions (
    id BIGSERIAL PRIMARY KEY,
    learner_id UUID NOT NULL,
    minutes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_minutes CHECK (minutes >= 0)
);

CREATE INDEX IF NOT EXISTS idx_study_sessions_learner_created ON study_sessions(learner_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS study_sessions;
DROP TABLE IF EXISTS quiz_attempts;
DROP TABLE IF EXISTS topic_progress;
DROP TABLE IF EXISTS lesson_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACHIEVEMENTS
// grade = 0 means the rule is not grade-parametrized.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS achievement_definitions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    rule_key TEXT NOT NULL,
    grade INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_achievement_rule UNIQUE (rule_key, grade),
    CONSTRAINT valid_definition_grade CHECK (grade >= 0)
);

CREATE TABLE IF NOT EXISTS achievement_unlocks (
    learner_id UUID NOT NULL,
    achievement_id UUID NOT NULL REFERENCES achievement_definitions(id) ON DELETE CASCADE,
    unlocked BOOLEAN NOT NULL DEFAULT TRUE,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (learner_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_achievement_unlocks_learner ON achievement_unlocks(learner_id) WHERE unlocked;
`

const migration003Down = `
DROP TABLE IF EXISTS achievement_unlocks;
DROP TABLE IF EXISTS achievement_definitions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: DAILY REPORTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS daily_reports (
    id UUID PRIMARY KEY,
    learner_id UUID NOT NULL,
    report_date DATE NOT NULL,
    struggling_topics JSONB NOT NULL DEFAULT '[]'::jsonb,
    needs_work JSONB NOT NULL DEFAULT '[]'::jsonb,
    recommendations TEXT NOT NULL DEFAULT '',
    overall_performance TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT uq_daily_report UNIQUE (learner_id, report_date)
);
`

const migration004Down = `
DROP TABLE IF EXISTS daily_reports;
`
