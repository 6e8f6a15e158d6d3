package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SeedPair guarda o segredo de uma rodada e o compromisso publicado antes
// dela começar. ServerSeed só é exposto após a rodada resolver; até lá os
// apostadores conhecem apenas Commitment = SHA-256(ServerSeed).
type SeedPair struct {
	ServerSeed string
	Commitment string
	CreatedAt  time.Time
}

// NewSeedPair gera um server seed de 32 bytes e seu compromisso.
func NewSeedPair() (*SeedPair, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate server seed: %w", err)
	}

	seed := hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(seed))

	return &SeedPair{
		ServerSeed: seed,
		Commitment: hex.EncodeToString(sum[:]),
		CreatedAt:  time.Now(),
	}, nil
}

// VerifyCommitment confere se um seed revelado corresponde ao compromisso
// publicado antes da rodada.
func VerifyCommitment(serverSeed, commitment string) bool {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:]) == commitment
}
