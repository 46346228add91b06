package main

import (
	"fmt"
	"os"
	"time"

	"PairServer/pkg/util"
)

func main() {
	// 本地调试用：生成一个可直连 /ws 的身份 token
	uid := "AAAAAAAAAA"
	charIdent := "local-char-ident"
	if len(os.Args) > 1 {
		uid = os.Args[1]
	}
	if len(os.Args) > 2 {
		charIdent = os.Args[2]
	}

	token, err := util.SignClaims(uid, charIdent, 24*time.Hour)
	if err != nil {
		fmt.Printf("签发失败: %v\n", err)
		return
	}

	fmt.Printf("uid:        %s\n", uid)
	fmt.Printf("char_ident: %s\n", charIdent)
	fmt.Printf("token:      %s\n", token)
	fmt.Println("\n连接示例: ws://localhost:8081/ws?token=<token>")
}
