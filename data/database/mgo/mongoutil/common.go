package mongoutil

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3

	codeUnauthorized       = 13
	codeAuthenticationFail = 18
)

// buildMongoURI assembles a connection string from the discrete fields.
// Credentials are escaped so passwords may contain ':' or '@'.
func buildMongoURI(c *Config, authSource string) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   strings.Join(c.Address, ","),
		Path:   "/" + c.Database,
	}
	if c.Username != "" && c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	q := url.Values{}
	q.Set("authSource", authSource)
	q.Set("maxPoolSize", strconv.Itoa(c.MaxPoolSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// shouldRetry reports whether a connect error is worth another attempt.
// Authentication failures are final.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != codeUnauthorized && cmdErr.Code != codeAuthenticationFail
	}
	return true
}
