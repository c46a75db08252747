package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT UNIQUE NOT NULL,
    username      TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user','admin')),
    credibility   INTEGER NOT NULL DEFAULT 100 CHECK(credibility >= 0),
    wins          INTEGER NOT NULL DEFAULT 0 CHECK(wins >= 0),
    losses        INTEGER NOT NULL DEFAULT 0 CHECK(losses >= 0),
    level         INTEGER NOT NULL DEFAULT 1 CHECK(level >= 1),
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_credibility ON users(credibility DESC);

CREATE TABLE IF NOT EXISTS debates (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    category     TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'upcoming' CHECK(status IN ('upcoming','active','completed')),
    start_time   INTEGER NOT NULL,
    end_time     INTEGER,
    side_a_user  TEXT REFERENCES users(id),
    side_b_user  TEXT REFERENCES users(id),
    winner       TEXT REFERENCES users(id),
    votes_a      INTEGER NOT NULL DEFAULT 0 CHECK(votes_a >= 0),
    votes_b      INTEGER NOT NULL DEFAULT 0 CHECK(votes_b >= 0),
    created_by   TEXT,
    completed_at INTEGER,
    CHECK(winner IS NULL OR winner = COALESCE(side_a_user, '') OR winner = COALESCE(side_b_user, '')),
    CHECK(side_a_user IS NULL OR side_b_user IS NULL OR side_a_user != side_b_user)
);
CREATE INDEX IF NOT EXISTS idx_debates_status ON debates(status);
CREATE INDEX IF NOT EXISTS idx_debates_end ON debates(end_time) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS arguments (
    id         TEXT PRIMARY KEY,
    debate_id  TEXT NOT NULL REFERENCES debates(id),
    user_id    TEXT NOT NULL REFERENCES users(id),
    round      INTEGER NOT NULL CHECK(round IN (1, 2, 3)),
    side       TEXT NOT NULL CHECK(side IN ('A','B')),
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (debate_id, side, round)
);
CREATE INDEX IF NOT EXISTS idx_arguments_debate ON arguments(debate_id);

CREATE TABLE IF NOT EXISTS votes (
    debate_id  TEXT NOT NULL REFERENCES debates(id),
    voter_id   TEXT NOT NULL REFERENCES users(id),
    side       TEXT NOT NULL CHECK(side IN ('A','B')),
    created_at INTEGER NOT NULL,
    PRIMARY KEY (debate_id, voter_id)
);

CREATE TABLE IF NOT EXISTS notifications (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    type       TEXT NOT NULL CHECK(type IN ('debate_start','vote_received','win','loss','alert')),
    message    TEXT NOT NULL,
    debate_id  TEXT,
    read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read);
`
