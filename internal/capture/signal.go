package capture

import "syscall"

// terminateSignal is sent for graceful subprocess shutdown before
// escalating to SIGKILL.
var terminateSignal = syscall.SIGTERM
