package internal

// DelegateWriteBytes is a callback function type to report the number of
// verified bytes written to disk per write cycle.
type DelegateWriteBytes func(writtenBytes int64)

// DelegateFileStart is a callback function type to report that the
// reconstruction of a file has started.
type DelegateFileStart func(filename string, fileSize int64)

// DelegateUpdatePlan is a callback function type to report the size of an
// update's change set once it has been computed.
type DelegateUpdatePlan func(totalBytes int64, fileCount int)
