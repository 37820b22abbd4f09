// Command hashsecret prints the bcrypt hash for ADMIN_PASSWORD_HASH or DRIVER_CODE_HASH.
//
//	go run ./cmd/hashsecret 'my-password'
//	echo -n 'my-password' | go run ./cmd/hashsecret
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/example/coolpis/internal/utils"
)

func main() {
	secret := ""
	if len(os.Args) > 1 {
		secret = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read secret: %v", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}

	hash, err := utils.HashSecret(secret)
	if err != nil {
		log.Fatalf("hash secret: %v", err)
	}
	fmt.Println(hash)
}
