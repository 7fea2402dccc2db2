package incremental

import (
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/go-json-experiment/json"
	"github.com/opencontainers/go-digest"

	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

// Digest returns the content digest of v: SHA-256 over its canonical JSON.
func Digest(v any) (digest.Digest, error) {
	raw, err := json.Marshal(v, json.Deterministic(true))
	if err != nil {
		return "", fmt.Errorf("marshal digest input: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize digest input: %w", err)
	}
	return digest.FromBytes(canonical), nil
}

type memberInput struct {
	Owner  decl.TypeID `json:"owner"`
	Member decl.Member `json:"member"`
}

// MemberDigest is the digest a member's scan result is memoized under.
func MemberDigest(owner decl.TypeID, m decl.Member) (digest.Digest, error) {
	return Digest(memberInput{Owner: owner, Member: m})
}

type groupInput struct {
	Format int                   `json:"format"`
	Config propgen.EmitConfig    `json:"config"`
	Group  propgen.ResolvedGroup `json:"group"`
}

// GroupDigest is the digest a resolved group's artifact is cached under.
// It covers the emitter configuration and the artifact format, so changing
// either re-emits every group.
// Source positions and the owner's directory are left out; they do not
// reach the artifact, and digests must match across checkouts.
func GroupDigest(config propgen.EmitConfig, rg propgen.ResolvedGroup) (digest.Digest, error) {
	rg.Owner.Dir = ""
	props := make([]propgen.Property, len(rg.Properties))
	for i, p := range rg.Properties {
		p.Pos = decl.Position{}
		props[i] = p
	}
	rg.Properties = props
	return Digest(groupInput{Format: propgen.ArtifactFormat, Config: config, Group: rg})
}
