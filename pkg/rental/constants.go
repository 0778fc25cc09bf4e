package rental

const (
	operationRequest    = "request"
	operationDecide     = "decide"
	operationComplete   = "complete"
	operationTransition = "transition"
	operationRebuild    = "rebuild_calendar"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	notificationKindRequest   = "new_rental_request"
	notificationKindConfirmed = "rental_confirmed"
	notificationKindRejected  = "rental_rejected"
)
