package redisreg

import "fmt"

func workerKey(prefix, id string) string {
	return fmt.Sprintf("%s:worker:%s", prefix, id)
}

func availableKey(prefix string) string {
	return fmt.Sprintf("%s:workers:available", prefix)
}

func allKey(prefix string) string {
	return fmt.Sprintf("%s:workers:all", prefix)
}
