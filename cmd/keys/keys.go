package keys

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"riskengine/src/security"
)

// HashOverrideToken prints the OVERRIDE_TOKEN_HASH value for a token taken
// from config or the first line of in.
func HashOverrideToken(cfg Config, in io.Reader, out io.Writer) error {
	token := cfg.Token
	if token == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	hashed, err := security.HashToken(token)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "OVERRIDE_TOKEN_HASH=%s\n", hashed)
	return err
}
