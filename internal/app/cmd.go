package app

import "sort"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandCleanup は保持期間を超過した監査イベントを1回だけ削除する。
	CommandCleanup Command = "cleanup"
	// CommandProbe はHikCentralへの接続確認を1回だけ行う。
	CommandProbe Command = "probe"
	// CommandHealthcheck は稼働中のサーバーの /health を確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commandDescriptions = map[Command]string{
	CommandServe:       "start the HTTP API server (default)",
	CommandMigrate:     "apply database migrations",
	CommandCleanup:     "delete audit events older than AUDIT_RETENTION_DAYS",
	CommandProbe:       "call the HikCentral version API once and exit non-zero on failure",
	CommandHealthcheck: "GET /health on the local server",
}

// Description はサブコマンドの説明を返す。
func (c Command) Description() string {
	return commandDescriptions[c]
}

// Commands は利用可能なサブコマンドを名前順で返す。
func Commands() []Command {
	cmds := make([]Command, 0, len(commandDescriptions))
	for c := range commandDescriptions {
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返し、未知のコマンドの場合は ok=false を返す。
func ParseCommand(args []string) (cmd Command, ok bool) {
	if len(args) == 0 {
		return CommandServe, true
	}
	cmd = Command(args[0])
	if _, known := commandDescriptions[cmd]; !known {
		return cmd, false
	}
	return cmd, true
}
