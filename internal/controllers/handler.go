package controllers

import (
	"context"
	stdhttp "net/http"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// Registrar 由各 Handler 实现，向 HTTP Router 注册路由。
type Registrar interface {
	Register(r *khttp.Router)
}

// serve 按 kratos 生成代码的方式执行中间件链并写回 JSON 结果。
func serve[T any](ctx khttp.Context, operation string, in *T, fn func(context.Context, *T) (any, error)) error {
	khttp.SetOperation(ctx, operation)
	h := ctx.Middleware(func(c context.Context, req any) (any, error) {
		return fn(c, req.(*T))
	})
	out, err := h(ctx, in)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

// bindBodyAndVars 先解析请求体，再以路径参数覆盖同名字段。
func bindBodyAndVars(ctx khttp.Context, in any) error {
	if err := ctx.Bind(in); err != nil {
		return err
	}
	return ctx.BindVars(in)
}

// bindQueryAndVars 解析查询参数与路径参数。
func bindQueryAndVars(ctx khttp.Context, in any) error {
	if err := ctx.BindQuery(in); err != nil {
		return err
	}
	return ctx.BindVars(in)
}
