// Package apperr provides the error taxonomy shared by the account and social
// services. Every failure carries a machine-readable Code, a Kind used for
// transport mapping, and a human-readable message.
package apperr

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeSelfRequest        Code = "SELF_REQUEST"
	CodeDuplicateRequest   Code = "DUPLICATE_REQUEST"
	CodeDuplicateAccount   Code = "DUPLICATE_ACCOUNT"
	CodeUnknownRecipient   Code = "UNKNOWN_RECIPIENT"
	CodeInvalidInvite      Code = "INVALID_INVITE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeBusy               Code = "BUSY"
	CodeInternal           Code = "INTERNAL"
)

// Kind groups codes into the families callers branch on.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuth
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Kind maps a code to its family.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation:
		return KindValidation
	case CodeSelfRequest, CodeDuplicateRequest, CodeDuplicateAccount, CodeBusy:
		return KindConflict
	case CodeUnknownRecipient, CodeInvalidInvite, CodeNotFound:
		return KindNotFound
	case CodeInvalidCredentials, CodeUnauthorized:
		return KindAuth
	case CodeForbidden:
		return KindForbidden
	default:
		return KindInternal
	}
}
