package i18n

import "net/http"

// Middleware stores a localizer in every request context. The lang query
// parameter wins over Accept-Language, which wins over the catalog default.
func (c *Catalog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var langs []string
		if q := r.URL.Query().Get("lang"); q != "" {
			langs = append(langs, q)
		}
		if al := r.Header.Get("Accept-Language"); al != "" {
			langs = append(langs, al)
		}
		ctx := WithLocalizer(r.Context(), c.Localizer(langs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
