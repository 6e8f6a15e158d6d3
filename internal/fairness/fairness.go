package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
)

// rollWidth é a largura do prefixo do digest usado no sorteio: 8 chars hex
// = 32 bits. rollMax é o maior valor representável nessa largura + 1, o
// divisor da normalização para [0,1).
const (
	rollWidth = 8
	rollMax   = float64(1 << 32)
)

// Roll produz o valor pseudo-aleatório determinístico de um sorteio:
// HMAC-SHA256(key=serverSeed, msg=clientSeed+":"+nonce), prefixo de 32 bits
// normalizado para [0,1). Retorna também o digest completo em hex para
// auditoria. Qualquer um com (serverSeed, clientSeed, nonce) reproduz o
// mesmo valor; é a base da garantia "provably fair".
func Roll(serverSeed, clientSeed string, nonce uint64) (float64, string) {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(clientSeed + ":" + strconv.FormatUint(nonce, 10)))
	digest := hex.EncodeToString(h.Sum(nil))

	num, _ := strconv.ParseUint(digest[:rollWidth], 16, 64)
	return float64(num) / rollMax, digest
}

// CrashPoint aplica a transformação de vantagem da casa sobre um roll em
// [0,1) e devolve o multiplicador de crash com duas casas decimais.
// O arredondamento é sempre para baixo: arredondar para cima pagaria
// ocasionalmente um valor computado perdedor.
func CrashPoint(r, houseEdge, maxMultiplier float64) float64 {
	m := math.Floor(100*(1-houseEdge)/(1-r)) / 100
	if m < 1.00 {
		m = 1.00
	}
	if m > maxMultiplier {
		m = maxMultiplier
	}
	return m
}

// Verify reproduz um sorteio a partir das entradas reveladas e confere o
// digest publicado. Usado pelo endpoint de verificação pós-rodada.
func Verify(serverSeed, clientSeed string, nonce uint64, wantDigest string) (float64, bool) {
	roll, digest := Roll(serverSeed, clientSeed, nonce)
	return roll, digest == wantDigest
}
