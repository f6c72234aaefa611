package utils

const (
	RPCERROR = "JSON RPC ERROR WITH MESSAGE"
)

const (
	RPC_TIMEOUT    = "rpc request timed out"
	RPC_BAD_STATUS = "rpc returned non-2xx status"
)

const (
	BUNDLE_NOT_LANDED = "bundle not landed within status wait"
)
