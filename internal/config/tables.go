package config

// DefaultFieldValues is the fallback value for each canonical field kind.
func DefaultFieldValues() map[string]string {
	return map[string]string{
		"name":    "Interested Customer",
		"email":   "contact.inquiry@example.com",
		"phone":   "9876543210",
		"message": "Hello, I am interested in your services and would like to discuss further. Please contact me.",
		"country": "India",
	}
}

// DefaultSmartDefaults is the ordered keyword table consulted when a field
// kind has no direct value. Order matters: the first overlapping key wins.
func DefaultSmartDefaults() []SmartDefault {
	return []SmartDefault{
		{Key: "job", Value: "Business Owner"},
		{Key: "company", Value: "Private Business"},
		{Key: "position", Value: "Manager"},
		{Key: "designation", Value: "Director"},
		{Key: "organization", Value: "Self Employed"},
		{Key: "profession", Value: "Entrepreneur"},
		{Key: "occupation", Value: "Business"},
		{Key: "country", Value: "India"},
		{Key: "city", Value: "Delhi"},
		{Key: "state", Value: "Delhi"},
		{Key: "address", Value: "Delhi, India"},
		{Key: "gender", Value: "Male"},
		{Key: "age", Value: "30"},
		{Key: "subject", Value: "General Inquiry"},
		{Key: "topic", Value: "Business Inquiry"},
		{Key: "department", Value: "Sales"},
		{Key: "website", Value: "www.example.com"},
		{Key: "title", Value: "Mr"},
	}
}

// DefaultCaptchaSelectors lists the known challenge widgets, reCAPTCHA first.
func DefaultCaptchaSelectors() []string {
	return []string{
		"iframe[src*='recaptcha']",
		"iframe[src*='google.com/recaptcha']",
		"div.g-recaptcha",
		".g-recaptcha",
		"iframe[src*='hcaptcha']",
		"div.h-captcha",
		".h-captcha",
	}
}

// smartDefaultMaps renders the smart default table in the shape viper
// decodes back into []SmartDefault.
func smartDefaultMaps() []map[string]any {
	table := DefaultSmartDefaults()
	out := make([]map[string]any, 0, len(table))
	for _, sd := range table {
		out = append(out, map[string]any{"key": sd.Key, "value": sd.Value})
	}
	return out
}
