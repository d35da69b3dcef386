package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"uetools/internal/infra/config"
)

// runEncrypt prints value (or the first line of in when no value is given)
// as an "enc:" string for the notify credentials in uetools.yaml.
func runEncrypt(w io.Writer, in io.Reader, args []string, passphrase string) error {
	if passphrase == "" {
		return errors.New("UETOOLS_CONFIG_KEY is not set")
	}

	var value string
	if len(args) > 0 {
		value = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read value: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return errors.New("usage: uetools encrypt [VALUE] (or pipe the value on stdin)")
	}

	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "enc:%s\n", enc)
	return nil
}
