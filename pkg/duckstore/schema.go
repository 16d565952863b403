package duckstore

const eventSchema = `
CREATE TABLE IF NOT EXISTS events (
    event_id      BIGINT PRIMARY KEY,
    trigger_id    INTEGER NOT NULL,
    trigger_ts    DOUBLE NOT NULL,
    multiplicity  INTEGER NOT NULL,
    mult_a        INTEGER NOT NULL,
    mult_b        INTEGER NOT NULL,
    mult_c        INTEGER NOT NULL,
    candidate     BOOLEAN NOT NULL,
    sum_energy    DOUBLE NOT NULL
);

CREATE TABLE IF NOT EXISTS hits (
    event_id      BIGINT NOT NULL,
    module        UTINYINT NOT NULL,
    channel       UTINYINT NOT NULL,
    timestamp     DOUBLE NOT NULL,
    energy_long   USMALLINT NOT NULL,
    energy_short  USMALLINT NOT NULL
);
`
