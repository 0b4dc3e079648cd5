package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandWorker はワーカーモードで起動することを示す。
	// 日次パイプラインと運用サーバーを両方起動する。
	CommandWorker Command = "worker"
	// CommandOnce はパイプラインを1サイクルだけ実行して終了することを示す。
	CommandOnce Command = "once"
	// CommandServe は運用サーバーのみで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandWorkerを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandWorker
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "once":
		return CommandOnce
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandWorker
	}
}
