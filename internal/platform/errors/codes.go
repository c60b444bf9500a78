package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Aggregate errors
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeValidationFailed       Code = "VALIDATION_FAILED"
	CodeReplayIntegrity        Code = "REPLAY_INTEGRITY"

	// Ticket errors
	CodeTicketSubjectEmpty   Code = "TICKET_SUBJECT_EMPTY"
	CodeTicketAgentEmpty     Code = "TICKET_AGENT_EMPTY"
	CodeTicketMessageEmpty   Code = "TICKET_MESSAGE_EMPTY"
	CodeTicketAlreadyClosed  Code = "TICKET_ALREADY_CLOSED"
	CodeTicketNotResolvable  Code = "TICKET_NOT_RESOLVABLE"
	CodeTicketNotEscalatable Code = "TICKET_NOT_ESCALATABLE"

	// Invoice errors
	CodeInvoiceNumberEmpty      Code = "INVOICE_NUMBER_EMPTY"
	CodeInvoiceClientEmpty      Code = "INVOICE_CLIENT_EMPTY"
	CodeInvoiceNotDraft         Code = "INVOICE_NOT_DRAFT"
	CodeInvoiceNotPayable       Code = "INVOICE_NOT_PAYABLE"
	CodeInvoiceAlreadyPaid      Code = "INVOICE_ALREADY_PAID"
	CodeInvoiceCurrencyMismatch Code = "INVOICE_CURRENCY_MISMATCH"
	CodeInvoiceLineItemInvalid  Code = "INVOICE_LINE_ITEM_INVALID"
	CodeInvoiceLineItemMissing  Code = "INVOICE_LINE_ITEM_MISSING"

	// Client errors
	CodeClientNameEmpty      Code = "CLIENT_NAME_EMPTY"
	CodeClientEmailEmpty     Code = "CLIENT_EMAIL_EMPTY"
	CodeClientTypeInvalid    Code = "CLIENT_TYPE_INVALID"
	CodeClientDeactivated    Code = "CLIENT_DEACTIVATED"
	CodeClientLeadScoreRange Code = "CLIENT_LEAD_SCORE_RANGE"

	// AI model errors
	CodeModelNameEmpty          Code = "MODEL_NAME_EMPTY"
	CodeModelVersionEmpty       Code = "MODEL_VERSION_EMPTY"
	CodeModelVersionDuplicate   Code = "MODEL_VERSION_DUPLICATE"
	CodeModelVersionUnknown     Code = "MODEL_VERSION_UNKNOWN"
	CodeModelVersionUnapproved  Code = "MODEL_VERSION_UNAPPROVED"
	CodeModelRetired            Code = "MODEL_RETIRED"
	CodeModelEnvironmentInvalid Code = "MODEL_ENVIRONMENT_INVALID"
)
