package model

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// JobKeyGenerator derives the identity key of a job instance from its parameters.
type JobKeyGenerator interface {
	GenerateKey(params JobParameters) string
}

// DefaultJobKeyGenerator hashes the identifying parameters with MD5.
// Keys are sorted, rendered as "key=value;" and the digest is returned as 32 lowercase hex characters.
type DefaultJobKeyGenerator struct{}

// NewDefaultJobKeyGenerator creates a DefaultJobKeyGenerator.
func NewDefaultJobKeyGenerator() *DefaultJobKeyGenerator {
	return &DefaultJobKeyGenerator{}
}

// GenerateKey implements JobKeyGenerator.
func (g *DefaultJobKeyGenerator) GenerateKey(params JobParameters) string {
	keys := make([]string, 0, len(params.params))
	for k := range params.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		param := params.params[k]
		if !param.IsIdentifying() {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(param.String())
		b.WriteByte(';')
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
