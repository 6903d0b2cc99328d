package droptest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// digestGate guards routes with RFC 2617 digest authentication (MD5,
// qop="auth"): challenge when credentials are missing or wrong, recompute and
// compare the response hash otherwise. One static nonce per server instance
// is enough for tests.
type digestGate struct {
	realm    string
	username string
	password string
	nonce    string
	opaque   string
}

func newDigestGate(username, password string) *digestGate {
	return &digestGate{
		realm:    "droplink",
		username: username,
		password: password,
		nonce:    uuid.NewString(),
		opaque:   uuid.NewString(),
	}
}

func (g *digestGate) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := parseDigestHeader(r.Header.Get("Authorization"))
		if !ok || !g.verify(r.Method, creds) {
			g.challenge(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *digestGate) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Digest realm=%q, nonce=%q, opaque=%q, qop="auth", algorithm=MD5`,
			g.realm, g.nonce, g.opaque))
	http.Error(w, "authentication required", http.StatusUnauthorized)
}

func (g *digestGate) verify(method string, creds map[string]string) bool {
	if creds["username"] != g.username || creds["realm"] != g.realm || creds["nonce"] != g.nonce {
		return false
	}
	if creds["opaque"] != g.opaque {
		return false
	}

	ha1 := md5hex(creds["username"] + ":" + g.realm + ":" + g.password)
	ha2 := md5hex(method + ":" + creds["uri"])

	var expected string
	if qop := creds["qop"]; qop == "auth" {
		expected = md5hex(strings.Join([]string{ha1, g.nonce, creds["nc"], creds["cnonce"], qop, ha2}, ":"))
	} else {
		expected = md5hex(ha1 + ":" + g.nonce + ":" + ha2)
	}
	return expected == creds["response"]
}

var digestParamPattern = regexp.MustCompile(`(\w+)=(?:"([^"]*)"|([^\s,]+))`)

// parseDigestHeader splits a Digest authorization header into its
// parameters. Values arrive quoted or bare depending on the parameter.
func parseDigestHeader(header string) (map[string]string, bool) {
	const prefix = "Digest "
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	params := make(map[string]string)
	for _, match := range digestParamPattern.FindAllStringSubmatch(header[len(prefix):], -1) {
		value := match[2]
		if value == "" {
			value = match[3]
		}
		params[match[1]] = value
	}
	return params, true
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
