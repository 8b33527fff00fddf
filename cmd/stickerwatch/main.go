package main

import (
	"context"
	"stickerwatch/cmd/stickerwatch/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
