// Command zkattest 证明服务入口：启动服务、本地一次性证明以及远程管理
package main

func main() {
	Execute()
}
