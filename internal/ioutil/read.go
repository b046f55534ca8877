package ioutil

import (
	"fmt"
	"io"
)

// ReadAtMost reads up to limit bytes from r. truncated reports whether r had
// more data past the limit.
func ReadAtMost(r io.Reader, limit int64) (body []byte, truncated bool, err error) {
	body, err = io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// ReadLimited is ReadAtMost for diagnostics: a read failure is described in
// the returned string instead of being returned.
func ReadLimited(r io.Reader, limit int64) string {
	body, _, err := ReadAtMost(r, limit)
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}
