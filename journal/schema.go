package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	dataset TEXT NOT NULL,
	strategy TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	config TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	n_trades INTEGER NOT NULL,
	initial_equity REAL NOT NULL,
	final_equity REAL NOT NULL,
	total_return_pct REAL NOT NULL,
	win_rate_pct REAL,
	mean_r REAL,
	median_r REAL,
	sharpe_r REAL,
	max_drawdown_pct REAL,
	mean_pnl REAL,
	total_pnl REAL NOT NULL,
	blocked TEXT NOT NULL,
	open_at_end INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	entry_index INTEGER NOT NULL,
	exit_index INTEGER NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	notional REAL NOT NULL,
	volatility_unit REAL NOT NULL,
	bars_held INTEGER NOT NULL,
	gross_pnl REAL NOT NULL,
	cost REAL NOT NULL,
	net_pnl REAL NOT NULL,
	return_pct REAL NOT NULL,
	r_multiple REAL,
	reason TEXT NOT NULL,
	snapshot TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	in_position INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS breakdowns (
	run_id TEXT NOT NULL,
	breakdown TEXT NOT NULL,
	label TEXT NOT NULL,
	min_samples INTEGER NOT NULL,
	n INTEGER NOT NULL,
	win_rate_pct REAL,
	mean_r REAL,
	median_r REAL,
	std_r REAL,
	p1_r REAL,
	p5_r REAL,
	p95_r REAL,
	p99_r REAL,
	total_pnl REAL NOT NULL,
	mean_pnl REAL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, entry_time);
CREATE INDEX IF NOT EXISTS idx_equity_run_time ON equity(run_id, time);
CREATE INDEX IF NOT EXISTS idx_breakdowns_run ON breakdowns(run_id, breakdown);
`
