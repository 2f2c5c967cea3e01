package model

type MarkOutcome string

const (
	MarkUpdated MarkOutcome = "updated"
	MarkNoOp    MarkOutcome = "noop"
)

type AcceptOutcome string

const (
	Accepted        AcceptOutcome = "accepted"
	AlreadyAccepted AcceptOutcome = "already_accepted"
)

type ResolveResult string

const (
	Granted        ResolveResult = "granted"
	AlreadyGranted ResolveResult = "already_granted"
	Rejected       ResolveResult = "rejected"
)
