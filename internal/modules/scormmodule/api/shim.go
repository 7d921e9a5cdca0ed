package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"text/template"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/bridge"
)

// The shim installs window.API and window.API_1484_11 on the page hosting
// the view. Calls are forwarded with synchronous XHR because content expects
// a return value before the call returns.
var shimTemplate = template.Must(template.New("rte.js").Parse(`(function (w) {
  "use strict";
  var base = {{.Base}};
  var bindings = {{.Bindings}};
  var failed = { GetLastError: "101", LMSGetLastError: "101", GetValue: "", LMSGetValue: "",
    GetErrorString: "General Exception", LMSGetErrorString: "General Exception",
    GetDiagnostic: "", LMSGetDiagnostic: "" };

  function call(api, method, args) {
    var list = [];
    for (var i = 0; i < args.length; i++) {
      list.push(args[i] === undefined || args[i] === null ? "" : String(args[i]));
    }
    try {
      var xhr = new XMLHttpRequest();
      xhr.open("POST", base + "/rte/" + api + "/" + method, false);
      xhr.setRequestHeader("Content-Type", "application/json");
      xhr.send(JSON.stringify({ args: list }));
      if (xhr.status === 200) {
        return JSON.parse(xhr.responseText).result;
      }
    } catch (e) {}
    return method in failed ? failed[method] : "false";
  }

  Object.keys(bindings).forEach(function (api) {
    var obj = {};
    bindings[api].forEach(function (method) {
      obj[method] = function () { return call(api, method, arguments); };
    });
    w[api] = obj;
  });
})(window);
`))

type shimData struct {
	Base     string
	Bindings string
}

// Shim handles GET /api/scorm/views/:viewId/rte.js
func (h *Handler) Shim(c *gin.Context) {
	viewID := c.Param("viewId")

	base, err := json.Marshal(ViewsPath + "/" + viewID)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	bindings, err := json.Marshal(map[string][]string{
		bridge.APIName12:   bridge.Methods(bridge.APIName12),
		bridge.APIName2004: bridge.Methods(bridge.APIName2004),
	})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := shimTemplate.Execute(&buf, shimData{Base: string(base), Bindings: string(bindings)}); err != nil {
		h.logger.Error("failed to render rte shim", "view_id", viewID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", buf.Bytes())
}
