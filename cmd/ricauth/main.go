// @title                       ricauth API
// @version                     1.0
// @description                 Users, organizations, groups and account recovery.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

func main() {
	execute()
}
