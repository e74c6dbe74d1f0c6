package config

// Default values shared by the loader and the init template.
const (
	DefaultTag            = "crashlog"
	DefaultDescription    = "The application stopped because of an unrecoverable error."
	DefaultSeparator      = "\n----------------------------------------\n"
	DefaultExitWait       = "5s"
	DefaultHandoffTimeout = "10s"
	DefaultExitCode       = 2
	DefaultLogDir         = ".crashlog/logs"
	DefaultMaxFiles       = 50
	DefaultCollector      = "full"
	DefaultHandoffDir     = ".crashlog/envelopes"
	DefaultOutboxPath     = ".crashlog/outbox.db"
	DefaultServerAddr     = "127.0.0.1:8765"
	DefaultServerDir      = ".crashlog/reports"
)

// DefaultConfigYAML is written by `crashlog init`.
const DefaultConfigYAML = `# crashlog configuration
#
# Values not specified here use built-in defaults.
# Every key can be overridden with a CRASHLOG_ environment variable,
# e.g. CRASHLOG_DELIVERY_SEND_WITH_NET=true.

log:
  level: info
  # auto | text | json
  format: auto

crash:
  tag: crashlog
  description: "The application stopped because of an unrecoverable error."
  # How long the process stays alive after a crash before it exits.
  exit_wait: 5s
  # Upper bound on waiting for the crash log and delivery handoff.
  handoff_timeout: 10s
  exit_code: 2
  log_dir: .crashlog/logs
  # Oldest crash logs beyond this count are removed.
  max_files: 50
  # app | runtime | device | full
  collector: full
  # Append the (redacted) process environment to each crash log.
  include_env: false

delivery:
  # process: hand off to a detached "crashlog deliver" process
  # inline:  deliver from a goroutine in the crashing process
  # none:    keep crash logs locally only
  mode: process
  send_with_net: false
  handoff_dir: .crashlog/envelopes
  email:
    enabled: false
    host: smtp.example.com
    port: 587
    username: ""
    password: ""
    from: crashlog@example.com
    to: []
    subject: "Crash report"
  upload:
    enabled: false
    url: ""
    token: ""
    timeout: 10s
    max_retries: 3

outbox:
  path: .crashlog/outbox.db

server:
  addr: 127.0.0.1:8765
  dir: .crashlog/reports
  token: ""
`
