package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }

// Domain

func Op(v string) zap.Field         { return zap.String("op", v) }
func OperatorID(v string) zap.Field { return zap.String("operator_id", v) }
func IdentityID(v string) zap.Field { return zap.String("identity_id", v) }
func Err(err error) zap.Field       { return zap.Error(err) }

// Email logs the address with most of the local part masked.
func Email(v string) zap.Field {
	return zap.String("email", MaskEmail(v))
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
