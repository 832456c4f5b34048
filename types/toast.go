package types

type ToastVariant string

const (
	ToastError   ToastVariant = "error"
	ToastInfo    ToastVariant = "info"
	ToastSuccess ToastVariant = "success"
)

type Toast struct {
	Variant ToastVariant `json:"variant"`
	Message string       `json:"message"`
}

func ErrorToast(message string) *Toast {
	return &Toast{Variant: ToastError, Message: message}
}
