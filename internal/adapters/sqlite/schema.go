package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS cases (
	id           INTEGER PRIMARY KEY,
	profile      TEXT NOT NULL,
	evidence     TEXT NOT NULL,
	contributors INTEGER NOT NULL,
	deducible    INTEGER NOT NULL,
	quantity     REAL NOT NULL,
	theta        REAL NOT NULL,
	labkitid     TEXT,
	result       TEXT,
	claimant     TEXT
);
CREATE INDEX IF NOT EXISTS cases_claims ON cases(claimant);
CREATE INDEX IF NOT EXISTS cases_unfinished ON cases(claimant) WHERE result IS NULL;
`

const caseColumns = `id, profile, evidence, contributors, deducible, quantity, theta, labkitid, result, claimant`
