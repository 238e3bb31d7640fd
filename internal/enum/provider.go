package enum

type EmailProvider string

const (
	ProviderGmail   EmailProvider = "gmail"
	ProviderOutlook EmailProvider = "outlook"
)

func (t EmailProvider) String() string {
	return string(t)
}

func DecodeEmailProvider(s string) EmailProvider {
	switch s {
	case "gmail":
		return ProviderGmail
	case "outlook":
		return ProviderOutlook
	default:
		return ""
	}
}
