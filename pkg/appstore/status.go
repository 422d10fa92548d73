package appstore

// Receipt verification status codes surfaced to callers, plus the internal
// sandbox-redirect sentinel.
const (
	// StatusNoReceipt means no receipt blob exists on this machine. It is a
	// local sentinel, never returned by the verification servers.
	StatusNoReceipt = -999

	// StatusValid means the receipt verified successfully.
	StatusValid = 0

	// StatusSandboxReceipt means the production endpoint rejected a sandbox
	// receipt. The client retries against the sandbox endpoint and callers
	// never observe this code.
	StatusSandboxReceipt = 21007
)
