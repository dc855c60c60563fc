package app

import (
	"bytes"
	"context"
	"text/template"

	"go.uber.org/zap"

	"sitebot/internal/cache"
)

// PlaceholderScript is served for unknown, disabled or untrained sites. It
// is valid JavaScript that does nothing.
const PlaceholderScript = "/* sitebot: chat widget is not available for this site */\n"

var widgetTemplate = template.Must(template.New("widget").Parse(`(function () {
  var siteId = "{{js .SiteID}}";
  var endpoint = "{{js .BaseURL}}/widget/" + siteId + "/chat";
  if (window.__sitebotLoaded) { return; }
  window.__sitebotLoaded = true;

  var history = [];
  var root = document.createElement("div");
  root.id = "sitebot-widget";
  root.style.cssText = "position:fixed;bottom:20px;right:20px;z-index:2147483000;font-family:sans-serif";
  var button = document.createElement("button");
  button.textContent = "Chat";
  button.style.cssText = "border:0;border-radius:20px;padding:10px 16px;background:#111;color:#fff;cursor:pointer";
  var panel = document.createElement("div");
  panel.style.cssText = "display:none;width:320px;height:420px;background:#fff;border:1px solid #ddd;border-radius:8px;flex-direction:column;margin-bottom:8px";
  var log = document.createElement("div");
  log.style.cssText = "flex:1;overflow-y:auto;padding:8px;font-size:14px";
  var form = document.createElement("form");
  form.style.cssText = "display:flex;border-top:1px solid #eee";
  var input = document.createElement("input");
  input.placeholder = "Ask a question";
  input.style.cssText = "flex:1;border:0;padding:8px";
  form.appendChild(input);
  panel.appendChild(log);
  panel.appendChild(form);
  root.appendChild(panel);
  root.appendChild(button);
  document.body.appendChild(root);

  button.onclick = function () {
    panel.style.display = panel.style.display === "none" ? "flex" : "none";
  };

  function line(who) {
    var p = document.createElement("p");
    p.style.margin = "4px 0";
    p.textContent = who;
    log.appendChild(p);
    return p;
  }

  form.onsubmit = function (e) {
    e.preventDefault();
    var question = input.value.trim();
    if (!question) { return; }
    input.value = "";
    line("You: " + question);
    var answer = line("");
    var text = "";
    fetch(endpoint, {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ question: question, history: history })
    }).then(function (res) {
      if (!res.ok || !res.body) {
        answer.textContent = "Sorry, something went wrong. Please try again later.";
        return;
      }
      var reader = res.body.getReader();
      var decoder = new TextDecoder();
      var buffer = "";
      function pump() {
        return reader.read().then(function (r) {
          if (r.done) { return; }
          buffer += decoder.decode(r.value, { stream: true });
          var frames = buffer.split("\n\n");
          buffer = frames.pop();
          for (var i = 0; i < frames.length; i++) {
            var data = frames[i].replace(/^data: /, "");
            if (data === "[DONE]") {
              history.push([question, text]);
              return;
            }
            try {
              var msg = JSON.parse(data);
              if (msg.error) { text = msg.error; } else if (msg.data) { text += msg.data; }
              answer.textContent = text;
            } catch (err) {}
          }
          return pump();
        });
      }
      return pump();
    }).catch(function () {
      answer.textContent = "Sorry, something went wrong. Please try again later.";
    });
  };
})();
`))

type WidgetService struct {
	lookup  *siteLookup
	baseURL string
	logger  *zap.Logger
}

func NewWidgetService(sites SiteStore, siteCache cache.SiteCache, publicBaseURL string, logger *zap.Logger) *WidgetService {
	logger = logger.Named("widget")
	return &WidgetService{
		lookup:  &siteLookup{sites: sites, cache: siteCache, logger: logger},
		baseURL: publicBaseURL,
		logger:  logger,
	}
}

// Script renders the embed script for a site. It never fails: anything but
// an enabled, ready site gets PlaceholderScript, so host pages never break
// and visitors cannot tell which sites exist.
func (s *WidgetService) Script(ctx context.Context, siteID string) string {
	view, err := s.lookup.View(ctx, siteID)
	if err != nil {
		s.logger.Warn("load site for widget failed", zap.String("site_id", siteID), zap.Error(err))
		return PlaceholderScript
	}
	if view == nil || !view.Answerable() {
		return PlaceholderScript
	}

	var buf bytes.Buffer
	if err := widgetTemplate.Execute(&buf, struct {
		SiteID  string
		BaseURL string
	}{SiteID: view.ID, BaseURL: s.baseURL}); err != nil {
		s.logger.Error("render widget script failed", zap.Error(err))
		return PlaceholderScript
	}
	return buf.String()
}
