package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/miludeerforest/abp-studio-sub001/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("abp-studio ctl 0.1.0")
	case "config":
		runConfig()
	case "batch":
		runBatch(args)
	case "story":
		runStory(args)
	case "results":
		runResults(args)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: studioctl <command> [args]")
	fmt.Println("  version                       - 显示版本")
	fmt.Println("  config                        - 显示配置概要")
	fmt.Println("  batch create <kind> <in>...   - 创建批次并启动")
	fmt.Println("  batch status <batch_id>       - 批次实时快照")
	fmt.Println("  batch pause <batch_id>        - 暂停批次")
	fmt.Println("  batch resume <batch_id>       - 恢复批次")
	fmt.Println("  batch retry <batch_id> <item> - 重试失败单元")
	fmt.Println("  story generate <prompt>       - 发起 story 生成并返回 job_id")
	fmt.Println("  story status <job_id>         - story 任务监控快照")
	fmt.Println("  story stop <job_id>           - 停止对任务的轮询")
	fmt.Println("  results batches               - 最近的批次落账记录")
	fmt.Println("  results stories               - 最近的 story 落账记录")
}

func runConfig() {
	cfg, err := config.LoadStudioConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("api.port=%d\n", cfg.API.Port)
	fmt.Printf("remote.base_url=%s\n", cfg.Remote.BaseURL)
	fmt.Printf("results.type=%s\n", cfg.Results.Type)
	fmt.Printf("cache.type=%s\n", cfg.Cache.Type)
}

func runBatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: studioctl batch <create|status|pause|resume|retry> ...")
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: studioctl batch create <kind> <input>...")
			os.Exit(1)
		}
		id, err := createBatch(args[1], args[2:])
		if err != nil {
			fail("创建批次失败", err)
		}
		if err := startBatch(id); err != nil {
			fail("启动批次失败", err)
		}
		fmt.Println(id)
	case "status":
		requireArg(args, "batch status <batch_id>")
		out, err := batchSnapshot(args[1])
		if err != nil {
			fail("查询批次失败", err)
		}
		printSnapshot(out)
	case "pause":
		requireArg(args, "batch pause <batch_id>")
		if _, err := batchAction(args[1], "pause"); err != nil {
			fail("暂停批次失败", err)
		}
		fmt.Println("paused")
	case "resume":
		requireArg(args, "batch resume <batch_id>")
		if _, err := batchAction(args[1], "resume"); err != nil {
			fail("恢复批次失败", err)
		}
		fmt.Println("resumed")
	case "retry":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: studioctl batch retry <batch_id> <item_id>")
			os.Exit(1)
		}
		if err := retryItem(args[1], args[2]); err != nil {
			fail("重试失败", err)
		}
		fmt.Println("retrying")
	default:
		fmt.Fprintln(os.Stderr, "Usage: studioctl batch <create|status|pause|resume|retry> ...")
		os.Exit(1)
	}
}

func runStory(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: studioctl story <generate|status|stop> ...")
		os.Exit(1)
	}
	switch args[0] {
	case "generate":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: studioctl story generate <prompt>")
			os.Exit(1)
		}
		jobID, err := generateStory(strings.Join(args[1:], " "))
		if err != nil {
			fail("发起 story 生成失败", err)
		}
		fmt.Println(jobID)
	case "status":
		requireArg(args, "story status <job_id>")
		out, err := storyStatus(args[1])
		if err != nil {
			fail("查询 story 状态失败", err)
		}
		printStorySnapshot(out)
	case "stop":
		requireArg(args, "story stop <job_id>")
		if err := stopStory(args[1]); err != nil {
			fail("停止轮询失败", err)
		}
		fmt.Println("stopped")
	default:
		fmt.Fprintln(os.Stderr, "Usage: studioctl story <generate|status|stop> ...")
		os.Exit(1)
	}
}

func runResults(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: studioctl results <batches|stories>")
		os.Exit(1)
	}
	switch args[0] {
	case "batches":
		recs, err := listBatchResults()
		if err != nil {
			fail("查询批次记录失败", err)
		}
		for _, r := range recs {
			fmt.Printf("%v\t%v\n", r["id"], r["created_at"])
		}
	case "stories":
		recs, err := listStoryResults()
		if err != nil {
			fail("查询 story 记录失败", err)
		}
		for _, r := range recs {
			fmt.Printf("%v\t%v\t%v\n", r["job_id"], r["state"], r["created_at"])
		}
	default:
		fmt.Fprintln(os.Stderr, "Usage: studioctl results <batches|stories>")
		os.Exit(1)
	}
}

func requireArg(args []string, usage string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: studioctl %s\n", usage)
		os.Exit(1)
	}
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
