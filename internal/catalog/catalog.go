// Package catalog lists the administrative services offered by the portal.
package catalog

import "github.com/and161185/student-portal/internal/model"

// Service describes one entry of the services page.
type Service struct {
	Slug        string            `json:"slug"`
	Type        model.ServiceType `json:"service_type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	FileType    model.FileType    `json:"file_type"`  // attachment kind requested by the form
	FileLabel   string            `json:"file_label"` // upload field caption
	// NeedsStudyInfo marks forms that also ask for university and major.
	NeedsStudyInfo bool `json:"needs_study_info"`
}

const (
	labelCertificate = "تحميل صورة الشهادة"
	labelPassport    = "تحميل صورة جواز السفر"
	labelVisa        = "تحميل وثيقة طلب التأشيرة"
)

// fallbackTitle is shown for an unknown slug.
const fallbackTitle = "طلب خدمة"

var services = []Service{
	{
		Slug:        "certificate-auth",
		Type:        model.ServiceCertificateAuthentication,
		Title:       "تصديق الشهادات",
		Description: "تصديق وتوثيق الشهادات الدراسية",
		FileType:    model.FileCertificate,
		FileLabel:   labelCertificate,
	},
	{
		Slug:        "certificate-doc",
		Type:        model.ServiceCertificateDocumentation,
		Title:       "توثيق الشهادات",
		Description: "توثيق الشهادات من الجهات الرسمية",
		FileType:    model.FileCertificate,
		FileLabel:   labelCertificate,
	},
	{
		Slug:        "ministry-auth",
		Type:        model.ServiceMinistryAuthentication,
		Title:       "تصديق الوزارة",
		Description: "تصديق الوثائق من وزارة التعليم العالي",
		FileType:    model.FileCertificate,
		FileLabel:   labelCertificate,
	},
	{
		Slug:        "passport-renewal",
		Type:        model.ServicePassportRenewal,
		Title:       "تجديد جواز السفر",
		Description: "طلب تجديد جواز السفر اليمني",
		FileType:    model.FilePassport,
		FileLabel:   labelPassport,
	},
	{
		Slug:           "visa-request",
		Type:           model.ServiceVisaRequest,
		Title:          "طلب تأشيرة دخول",
		Description:    "طلب الحصول على تأشيرة دخول للعراق",
		FileType:       model.FileVisaRequest,
		FileLabel:      labelVisa,
		NeedsStudyInfo: true,
	},
}

// All returns the catalog in display order.
func All() []Service {
	return append([]Service(nil), services...)
}

// BySlug finds a service by its URL slug.
func BySlug(slug string) (Service, bool) {
	for _, s := range services {
		if s.Slug == slug {
			return s, true
		}
	}
	return Service{}, false
}

// ByType finds a service by its stored type.
func ByType(t model.ServiceType) (Service, bool) {
	for _, s := range services {
		if s.Type == t {
			return s, true
		}
	}
	return Service{}, false
}

// Title returns the display title for slug, or the generic one.
func Title(slug string) string {
	if s, ok := BySlug(slug); ok {
		return s.Title
	}
	return fallbackTitle
}

// FileTypeFor returns the attachment kind for t; unknown types get FileOther.
func FileTypeFor(t model.ServiceType) model.FileType {
	if s, ok := ByType(t); ok {
		return s.FileType
	}
	return model.FileOther
}
